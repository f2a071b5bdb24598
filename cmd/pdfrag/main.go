// Command pdfrag answers questions about a folder of PDF documents. It
// ingests the PDFs into a Qdrant collection and runs a retrieval-augmented
// chat against them from the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/pdfrag-go/cmd/pdfrag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
