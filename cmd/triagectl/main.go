// triagectl scores and triages chat messages from the command line.
package main

import "github.com/darktomcat119/Health-AI-MVP/internal/cli"

func main() {
	cli.Execute()
}
