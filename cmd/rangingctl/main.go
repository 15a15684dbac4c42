// Command rangingctl is an offline inspection tool for the ranging core: it
// decodes OOB wire messages and runs the configuration selector against
// capability fixtures without needing a live rangingd process.
package main

import "github.com/sebas/rangingcore/cmd/rangingctl/commands"

func main() {
	commands.Execute()
}
