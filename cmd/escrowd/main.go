package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	weave "github.com/iov-one/escrowfactory"
	escrowd "github.com/iov-one/escrowfactory/cmd/escrowd/app"
	"github.com/iov-one/escrowfactory/commands/server"
	"github.com/tendermint/tendermint/libs/log"
)

var (
	flagHome = "home"
	varHome  *string
)

func init() {
	defaultHome := filepath.Join(os.ExpandEnv("$HOME"), ".escrowd")
	varHome = flag.String(flagHome, defaultHome, "directory to store files under")

	flag.CommandLine.Usage = helpMessage
}

func helpMessage() {
	fmt.Println("escrowd")
	fmt.Println("          Escrow factory ledger")
	fmt.Println("")
	fmt.Println("help      Print this message")
	fmt.Println("init      Create the configuration and the genesis file")
	fmt.Println("start     Run the ledger and its HTTP gateway")
	fmt.Println("keys      Manage signing keys (new, show, list)")
	fmt.Println("dump      Print the committed state of a stopped node")
	fmt.Println("validate  Check that genesis files can be loaded")
	fmt.Println("version   Print the app version")
	fmt.Println(`
  -home string
        directory to store files under (default "$HOME/.escrowd")`)
}

func main() {
	logger := log.NewTMLogger(log.NewSyncWriter(os.Stdout)).
		With("module", "escrowd")

	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Println("Missing command:")
		helpMessage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)
	rest := flag.Args()[1:]

	var err error
	switch cmd {
	case "help":
		helpMessage()
	case "init":
		err = server.InitCmd(escrowd.GenInitOptions, logger, *varHome, rest)
	case "start":
		err = server.StartCmd(escrowd.Application(), os.Stdout, *varHome, rest)
	case "keys":
		err = server.KeysCmd(os.Stdout, *varHome, rest)
	case "dump":
		err = server.DumpCmd(escrowd.Application(), os.Stdout, *varHome, rest)
	case "validate":
		err = server.ValidateGenesis(escrowd.Initializers(), rest)
	case "version":
		fmt.Println(weave.Version())
	default:
		err = fmt.Errorf("unknown command: %s", cmd)
	}

	if err != nil {
		fmt.Printf("Error: %+v\n\n", err)
		helpMessage()
		os.Exit(1)
	}
}
