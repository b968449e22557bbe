package schema

import (
	"encoding/json"
	"fmt"
	"github.com/tidwall/jsonc"
	"os"
	"strings"
)

// fileSchema mirrors the analyzer's AnalyzeResult as written to disk. Files
// are JSONC: comments and trailing commas are allowed.
//
//	{
//	  "services": [
//	    {"name": "hello", "location": "crate::api::greeting",
//	     "arguments": ["message: String"], "return_type": "Result<Greeting>"},
//	  ],
//	  "messages": [
//	    {"kind": "Struct", "name": "Greeting", "location": "crate::api::greeting", "code": "..."},
//	  ],
//	}
type fileSchema struct {
	Services []fileService `json:"services"`
	Messages []fileMessage `json:"messages"`
}

type fileService struct {
	Name       string      `json:"name"`
	Location   string      `json:"location"`
	Namespace  []string    `json:"namespace"`
	Arguments  []fileParam `json:"arguments"`
	ReturnType string      `json:"return_type"`
}

type fileMessage struct {
	Kind      string   `json:"kind"`
	Name      string   `json:"name"`
	Location  string   `json:"location"`
	Namespace []string `json:"namespace"`
	Code      string   `json:"code"`
}

// fileParam accepts both "name: Type" strings and {"name", "type"} objects.
type fileParam Param

func (p *fileParam) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		name, typ, _ := strings.Cut(s, ":")
		p.Name = strings.TrimSpace(name)
		p.Type = strings.TrimSpace(typ)
		return nil
	}
	var obj Param
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("schema: parameter must be a string or object: %w", err)
	}
	*p = fileParam(obj)
	return nil
}

// Load reads and parses a schema file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema: %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes JSONC schema data. The result is not validated; call
// Validate before building on it.
func Parse(data []byte) (*Schema, error) {
	var raw fileSchema
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	s := &Schema{
		Services: make([]ServiceDescriptor, 0, len(raw.Services)),
		Messages: make([]MessageDescriptor, 0, len(raw.Messages)),
	}
	for _, fs := range raw.Services {
		params := make([]Param, len(fs.Arguments))
		for i, a := range fs.Arguments {
			params[i] = Param(a)
		}
		s.Services = append(s.Services, ServiceDescriptor{
			Name:      fs.Name,
			Namespace: pickPath(fs.Namespace, fs.Location),
			Params:    params,
			Returns:   fs.ReturnType,
		})
	}
	for _, fm := range raw.Messages {
		kind, err := parseKind(fm.Kind)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", fm.Name, err)
		}
		s.Messages = append(s.Messages, MessageDescriptor{
			Kind:       kind,
			Name:       fm.Name,
			Namespace:  pickPath(fm.Namespace, fm.Location),
			Definition: fm.Code,
		})
	}
	return s, nil
}

func pickPath(namespace []string, location string) []string {
	if len(namespace) > 0 {
		return namespace
	}
	return ParsePath(location)
}

func parseKind(s string) (MessageKind, error) {
	switch strings.ToLower(s) {
	case string(KindEnum):
		return KindEnum, nil
	case string(KindStruct):
		return KindStruct, nil
	}
	return "", fmt.Errorf("unknown message kind %q", s)
}
