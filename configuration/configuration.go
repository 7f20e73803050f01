package configuration

type Configuration struct {
	HttpAddr string `usage:"HTTP address"`
	Engine   string `usage:"storage engine: file, sqlite or memory"`
	Dir      string `usage:"data directory"`
	Statics  string `usage:"statics directory, empty serves the embedded UI"`

	Export string `usage:"write all snippets to this file and exit"`
	Import string `usage:"load snippets from this file and exit"`

	EnableCompression bool `usage:"gzip responses"`

	Version    bool `usage:"show version and exit"`
	ShowBanner bool `usage:"show big banner"`
	ShowConfig bool `usage:"print config"`
}

func Default() Configuration {
	return Configuration{
		HttpAddr:   ":8080",
		Engine:     "file",
		Dir:        "data",
		ShowBanner: true,
	}
}
