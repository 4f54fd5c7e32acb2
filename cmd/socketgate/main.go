// Command socketgate bridges Sails socket clients to an HTTP application.
package main

import "github.com/socketgate/socketgate/cmd/socketgate/cmd"

func main() {
	cmd.Execute()
}
