package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"

	"github.com/raakeshmj/keygate/internal/apperr"
)

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Newf(apperr.RequestBodyTooLarge, "Request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, apperr.Wrap(apperr.InvalidRequestFormat, err, "Failed to read request body")
	}
	return body, nil
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := s.readBody(w, r)
	if err != nil {
		return err
	}
	return decodeObject(body, v)
}

// decodeObject requires a JSON object and reports type mismatches per field.
func decodeObject(data []byte, v any) error {
	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return apperr.Wrap(apperr.JSONParseError, err, "Invalid JSON")
	}
	if _, ok := probe.(map[string]any); !ok {
		return apperr.New(apperr.InvalidRequestFormat, "JSON must be an object")
	}

	if err := json.Unmarshal(data, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			code := apperr.InvalidFieldType
			if typeErr.Field == "key" {
				code = apperr.InvalidKeyType
			}
			return apperr.Newf(code, "%s must be a %s", typeErr.Field, kindName(typeErr.Type)).
				WithDetail("field", typeErr.Field)
		}
		return apperr.Wrap(apperr.JSONParseError, err, "Invalid JSON")
	}
	return nil
}

func kindName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	}
	return t.Kind().String()
}
