package main

import (
	"flag"
	"os"

	"github.com/golang/glog"

	"github.com/lumastream/luma/cmd/luma/cmd"
)

func main() {
	// glog registers its flags on the standard flag set; parse it empty
	// so the library is usable, cobra owns the real arguments.
	flag.CommandLine.Parse(nil)
	defer glog.Flush()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
