// Command pivcard drives PIV smartcards and the ECDH sealed-box primitive
// built on top of them.
package main

import "pivcard/cmd"

func main() {
	cmd.Execute()
}
