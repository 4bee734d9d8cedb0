package errors

import "encoding/json"

// ErrorResponse is the serialized shape of an error. Progress events carry it
// as their error detail.
type ErrorResponse struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Classification string                 `json:"classification"`
	Context        map[string]interface{} `json:"context,omitempty"`
}

// ToJSON converts err into an ErrorResponse. Plain errors are reported with
// CodeUnknown and their full text. It returns nil for a nil err.
func ToJSON(err error) *ErrorResponse {
	if err == nil {
		return nil
	}

	resp := &ErrorResponse{
		Code:           string(GetCode(err)),
		Message:        err.Error(),
		Classification: string(GetClassification(err)),
	}

	var pe PlatformError
	if As(err, &pe) {
		resp.Message = pe.Message()
		resp.Context = pe.Context()
	}
	return resp
}

// MarshalJSON encodes the error as an ErrorResponse.
func (e *platformError) MarshalJSON() ([]byte, error) {
	return json.Marshal(&ErrorResponse{
		Code:           string(e.code),
		Message:        e.message,
		Classification: string(e.classification),
		Context:        e.context,
	})
}
