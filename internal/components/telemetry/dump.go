package telemetry

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
)

// HttpDump receives a rendering of every request/response exchange.
type HttpDump interface {
	Write(id string, contents string)
}

// DirDump writes every exchange to its own file in a directory.
type DirDump struct {
	directory string
	tel       API
}

// NewDirDump creates the directory if needed, files of a previous dump are overwritten as ids
// repeat.
func NewDirDump(dir string, tel API) (DirDump, error) {
	err := os.MkdirAll(dir, 0777)
	if err != nil {
		return DirDump{}, err
	}
	return DirDump{directory: dir, tel: tel}, nil
}

func (d DirDump) Write(id string, contents string) {
	err := os.WriteFile(filepath.Join(d.directory, id+".txt"), []byte(contents), 0600)
	if err != nil {
		d.tel.ReportWarning("dump.write", err, id)
	}
}

func formatHeaders(headers http.Header) string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		for _, v := range headers[name] {
			lines = append(lines, fmt.Sprintf("%s: %s", name, v))
		}
	}
	return strings.Join(lines, "\n")
}

func formatRequestBody(req *http.Request) string {
	if req == nil || req.GetBody == nil {
		return ""
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("failed to get request body: %s", err.Error())
	}
	if body == nil {
		return ""
	}
	defer body.Close()
	read, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("failed to read request body: %s", err.Error())
	}
	return string(read)
}

// 1: request method
// 2: request url
// 3: request headers ("Key: Value" lines)
// 4: request body
// 5: response status
// 6: final url after redirects
// 7: response headers ("Key: Value" lines)
// 8: response body
const exchangeTemplate = `---- REQUEST ----

%s %s

%s

%s

---- RESPONSE ----

%s %s

%s

%s`

func formatExchange(res *resty.Response) string {
	var requestHeaders string
	var rawRequest *http.Request
	if res.Request.RawRequest != nil {
		rawRequest = res.Request.RawRequest
		requestHeaders = formatHeaders(rawRequest.Header)
	}

	finalUrl := res.Request.URL
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalUrl = res.RawResponse.Request.URL.String()
	}

	return fmt.Sprintf(
		exchangeTemplate,

		res.Request.Method, res.Request.URL,
		requestHeaders,
		formatRequestBody(rawRequest),

		strconv.Itoa(res.StatusCode()), finalUrl,
		formatHeaders(res.Header()),
		res.String(),
	)
}
