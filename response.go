package agentruntime

import "encoding/json"

type ResponseType string

const (
	ResponseTypeContent ResponseType = "content"
	ResponseTypeEnd     ResponseType = "end"
	ResponseTypeError   ResponseType = "error"
)

// Response is one streamed chunk sent from the Agent to the caller. It serialises to
// {"chunk": ..., "type": ...}.
type Response struct {
	Content string       `json:"chunk"`
	Type    ResponseType `json:"type"`
}

func (r Response) Terminal() bool {
	return r.Type == ResponseTypeEnd || r.Type == ResponseTypeError
}

// Result is the non-streaming envelope of a turn.
type Result struct {
	Result    string
	Error     string
	ErrorType string
}

func (r Result) Failed() bool {
	return r.ErrorType != ""
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(struct {
			Error     string `json:"error"`
			ErrorType string `json:"error_type"`
		}{r.Error, r.ErrorType})
	}
	return json.Marshal(struct {
		Result string `json:"result"`
	}{r.Result})
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var raw struct {
		Result    string `json:"result"`
		Error     string `json:"error"`
		ErrorType string `json:"error_type"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Result, r.Error, r.ErrorType = raw.Result, raw.Error, raw.ErrorType
	return nil
}

func resultFromError(err error) Result {
	return Result{Error: err.Error(), ErrorType: ErrorType(err)}
}

// Request is a single turn invocation.
type Request struct {
	Prompt    string `json:"prompt"`
	Streaming bool   `json:"streaming"`
}

// Reply carries either a completed Result or a Stream, depending on Request.Streaming.
type Reply struct {
	Result *Result
	Stream *Stream
}
