package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/fulldump/apitest"
)

// Save writes one markdown file per example, with a curl line and the raw
// HTTP exchange. It is a no-op unless API_EXAMPLES_PATH is set, so the
// acceptance tests stay silent by default.
func Save(response *apitest.Response, title, description string) {

	dir := os.Getenv("API_EXAMPLES_PATH")
	if dir == "" {
		return
	}

	request := response.Request

	query := request.URL.RawQuery
	if query != "" {
		query = "?" + query
	}

	requestBody := formatJSON(response.BodyRequestString())

	s := &strings.Builder{}

	s.WriteString("# " + title + "\n")
	if description != "" {
		for _, line := range strings.Split(description, "\n") {
			s.WriteString(strings.TrimSpace(line) + "\n")
		}
	}

	s.WriteString("\nCurl example:\n\n```sh\ncurl ")
	if request.Method != "GET" {
		s.WriteString("-X " + request.Method + " ")
	}
	s.WriteString(`"https://example.com` + request.URL.Path + query + `"`)
	if requestBody != "" {
		s.WriteString(" \\\n-d '" + requestBody + "'")
	}
	s.WriteString("\n```\n\nHTTP request/response example:\n\n```http\n")

	s.WriteString(request.Method + " " + request.URL.Path + query + " " + request.Proto + "\n")
	s.WriteString("Host: example.com\n\n")
	if requestBody != "" {
		s.WriteString(requestBody + "\n\n")
	}

	s.WriteString(response.Proto + " " + response.Status + "\n")
	headerKeys := []string{}
	for k := range response.Header {
		headerKeys = append(headerKeys, k)
	}
	sort.Strings(headerKeys)
	for _, k := range headerKeys {
		if k == "Date" {
			// Keep the examples stable across runs
			s.WriteString("Date: Mon, 15 Aug 2022 02:08:13 GMT\n")
			continue
		}
		for _, v := range response.Header[k] {
			s.WriteString(k + ": " + v + "\n")
		}
	}
	s.WriteString("\n" + formatJSON(response.BodyString()) + "\n```\n")

	filename := strings.ReplaceAll(strings.ToLower(title), " ", "_") + ".md"
	p := path.Join(dir, path.Clean(filename))
	err := os.WriteFile(p, []byte(s.String()), 0666)
	if nil != err {
		fmt.Println("save example:", err)
	}
}

func formatJSON(body string) string {

	var i interface{}

	err := json.Unmarshal([]byte(body), &i)
	if nil != err {
		return body
	}

	formatted, err := json.MarshalIndent(i, "", "    ")
	if nil != err {
		return body
	}

	return string(formatted)
}
