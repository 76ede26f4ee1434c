package main

import (
	"fmt"
	"os"

	"fjacquet/statement-ingest/cmd/accounts"
	"fjacquet/statement-ingest/cmd/batch"
	"fjacquet/statement-ingest/cmd/detect"
	"fjacquet/statement-ingest/cmd/formats"
	"fjacquet/statement-ingest/cmd/parse"
	"fjacquet/statement-ingest/cmd/root"
	"fjacquet/statement-ingest/cmd/serve"
)

func init() {
	root.Init()

	root.Cmd.AddCommand(parse.Cmd)
	root.Cmd.AddCommand(detect.Cmd)
	root.Cmd.AddCommand(batch.Cmd)
	root.Cmd.AddCommand(formats.Cmd)
	root.Cmd.AddCommand(accounts.Cmd)
	root.Cmd.AddCommand(serve.Cmd)
}

func main() {
	if err := root.Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
