package twiml

import (
	"bytes"
	"encoding/xml"
)

// Minimal TwiML response builder for the voice webhook boundary.
// It deliberately avoids any provider SDK dependency: the webhook contract
// is "always answer with a well-formed instruction document", so the builder
// must not be able to fail at render time for any reachable input.

type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type Say struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type Dial struct {
	XMLName                       xml.Name `xml:"Dial"`
	Action                        string   `xml:"action,attr,omitempty"`
	Timeout                       int      `xml:"timeout,attr,omitempty"`
	CallerID                      string   `xml:"callerId,attr,omitempty"`
	Record                        string   `xml:"record,attr,omitempty"`
	RecordingStatusCallback       string   `xml:"recordingStatusCallback,attr,omitempty"`
	RecordingStatusCallbackMethod string   `xml:"recordingStatusCallbackMethod,attr,omitempty"`
	Client                        *Client  `xml:"Client,omitempty"`
	Number                        string   `xml:"Number,omitempty"`
}

type Client struct {
	XMLName        xml.Name `xml:"Client"`
	StatusCallback string   `xml:"statusCallback,attr,omitempty"`
	Identity       string   `xml:",chardata"`
}

// Connect opens a bidirectional media stream to an external endpoint
type Connect struct {
	XMLName xml.Name `xml:"Connect"`
	Stream  *Stream  `xml:"Stream,omitempty"`
}

type Stream struct {
	XMLName    xml.Name    `xml:"Stream"`
	URL        string      `xml:"url,attr"`
	Parameters []Parameter `xml:"Parameter"`
}

type Parameter struct {
	XMLName xml.Name `xml:"Parameter"`
	Name    string   `xml:"name,attr"`
	Value   string   `xml:"value,attr"`
}

// New returns an empty response document
func New() *Response {
	return &Response{}
}

func (r *Response) SaySentence(text string) *Response {
	r.Verbs = append(r.Verbs, Say{Voice: "alice", Text: text})
	return r
}

func (r *Response) AddHangup() *Response {
	r.Verbs = append(r.Verbs, Hangup{})
	return r
}

func (r *Response) AddDial(d Dial) *Response {
	r.Verbs = append(r.Verbs, d)
	return r
}

func (r *Response) AddConnectStream(url string, params map[string]string, order []string) *Response {
	s := &Stream{URL: url}
	for _, name := range order {
		if v, ok := params[name]; ok {
			s.Parameters = append(s.Parameters, Parameter{Name: name, Value: v})
		}
	}
	r.Verbs = append(r.Verbs, Connect{Stream: s})
	return r
}

// Render serializes the document. Render cannot fail for documents built
// through this package; an encoding error falls back to a bare hangup so
// the telephony boundary still gets valid XML.
func (r *Response) Render() string {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return xml.Header + "<Response><Hangup/></Response>"
	}
	if err := enc.Flush(); err != nil {
		return xml.Header + "<Response><Hangup/></Response>"
	}
	return buf.String()
}
