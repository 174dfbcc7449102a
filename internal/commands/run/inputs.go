// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package run

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// loadPayloadFile loads a payload object from a JSON or YAML file, or from
// stdin when path is "-".
func loadPayloadFile(path string, stdin io.Reader) (map[string]any, error) {
	var data []byte
	var err error

	if path == "-" {
		data, err = io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload file: %w", err)
		}
	}

	var payload map[string]any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	// Round-trip through JSON so numbers and maps take the shapes schema
	// validation expects.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("payload is not JSON-compatible: %w", err)
	}
	payload = nil
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	return payload, nil
}

// parsePayload merges the payload file with key=value arguments. Values
// that parse as JSON keep their JSON type; anything else is a string.
func parsePayload(args []string, payloadFile string, stdin io.Reader) (map[string]any, error) {
	payload := make(map[string]any)
	if payloadFile != "" {
		loaded, err := loadPayloadFile(payloadFile, stdin)
		if err != nil {
			return nil, err
		}
		if loaded != nil {
			payload = loaded
		}
	}

	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid input format %q (expected key=value)", arg)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		payload[key] = v
	}
	return payload, nil
}
