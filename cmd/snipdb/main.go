package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fulldump/goconfig"

	"github.com/fulldump/snipdb/bootstrap"
	"github.com/fulldump/snipdb/configuration"
)

var banner = `
   _____       _       ____  ____
  / ___/____  (_)___  / __ \/ __ )
  \__ \/ __ \/ / __ \/ / / / __  |
 ___/ / / / / / /_/ / /_/ / /_/ /
/____/_/ /_/_/ .___/_____/_____/
            /_/      version ` + bootstrap.VERSION + `
`

func main() {

	c := configuration.Default()
	goconfig.Read(&c)

	if c.Version {
		fmt.Println("Version:", bootstrap.VERSION)
		return
	}

	if c.ShowBanner {
		fmt.Println(banner)
	}

	if c.ShowConfig {
		e := json.NewEncoder(os.Stdout)
		e.SetIndent("", "    ")
		e.Encode(c)
	}

	if c.Export != "" {
		err := bootstrap.ExportFile(c, c.Export)
		if err != nil {
			fmt.Println("ERROR:", err.Error())
			os.Exit(-1)
		}
		return
	}

	if c.Import != "" {
		err := bootstrap.ImportFile(c, c.Import)
		if err != nil {
			fmt.Println("ERROR:", err.Error())
			os.Exit(-1)
		}
		return
	}

	start, _ := bootstrap.Bootstrap(c)
	start()
}
