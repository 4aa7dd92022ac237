// Interactive console for sensor bus, useful for wiring checks in the field.
package main

import (
	"flag"
	"os"

	"github.com/airq/airnode/hardware/i2c"
	"github.com/airq/airnode/helpers/cli"
	"github.com/airq/airnode/log2"
	prompt "github.com/c-bata/go-prompt"
)

const usage = `syntax: commands separated by whitespace
(scd30)
- scd30.fw          firmware version
- scd30.start[=P]   continuous measurement, optional ambient pressure mbar
- scd30.stop
- scd30.interval[=N] show or set measurement interval seconds
- scd30.ready       data ready flag
- scd30.read        read CO2, temperature, humidity
(sps30)
- sps30.start  sps30.stop  sps30.reset  sps30.ready  sps30.read
(raw)
- @AA:XXXX/N   write hex XXXX to address AA, then read N bytes
- sN           pause N milliseconds

(meta)
- log=yes  enable debug logging
- log=no   disable debug logging
- loop=N   repeat N times all commands on this line
`

var log = log2.NewStderr(log2.LInfo)

func main() {
	cmdline := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	busName := cmdline.String("bus", "/dev/i2c-1", "i2c bus device")
	_ = cmdline.Parse(os.Args[1:])

	log.SetFlags(log2.LInteractiveFlags)

	bus, err := i2c.OpenPeriph(*busName)
	if err != nil {
		log.Fatal(err)
	}
	defer bus.Close()

	c := newConsole(bus, log)
	cli.MainLoop("airnode-cli", c.exec, newCompleter())
}

func newCompleter() prompt.Completer {
	suggests := []prompt.Suggest{
		{Text: "scd30.fw", Description: "SCD30 firmware version"},
		{Text: "scd30.start", Description: "SCD30 start continuous measurement"},
		{Text: "scd30.stop", Description: "SCD30 stop measurement"},
		{Text: "scd30.interval", Description: "SCD30 measurement interval"},
		{Text: "scd30.ready", Description: "SCD30 data ready"},
		{Text: "scd30.read", Description: "SCD30 read measurement"},
		{Text: "sps30.start", Description: "SPS30 start measurement"},
		{Text: "sps30.stop", Description: "SPS30 stop measurement"},
		{Text: "sps30.reset", Description: "SPS30 soft reset"},
		{Text: "sps30.ready", Description: "SPS30 data ready"},
		{Text: "sps30.read", Description: "SPS30 read measurement"},
		{Text: "@AA:XX/N", Description: "raw transaction"},
		{Text: "sN", Description: "pause for N ms"},
		{Text: "loop=N", Description: "repeat line N times"},
	}
	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterFuzzy(suggests, d.GetWordBeforeCursor(), true)
	}
}
