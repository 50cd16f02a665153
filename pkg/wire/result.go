package wire

import (
	"encoding/json"
	"fmt"
)

// Result is the payload shape every resource method returns.
type Result struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`

	// Some servers report server info at the top level of the initialize result.
	ServerName    string `json:"serverName,omitempty"`
	ServerVersion string `json:"serverVersion,omitempty"`
}

// DecodeResult decodes the result member of a response.
func DecodeResult(raw json.RawMessage) (*Result, error) {
	if isAbsent(raw) {
		return nil, fmt.Errorf("%w: missing result", ErrProtocol)
	}
	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: result: %v", ErrProtocol, err)
	}
	return &r, nil
}

// HasData reports whether the result carries a non-null data member.
func (r *Result) HasData() bool {
	return !isAbsent(r.Data)
}

// Resource describes one resource exposed by the server.
type Resource struct {
	Name  string `json:"name"`
	URI   string `json:"uri"`
	Type  string `json:"type,omitempty"`
	Value string `json:"value,omitempty"`
}

// ResourceList is the data member of a resources/list result.
type ResourceList struct {
	Resources []Resource `json:"resources"`
}

// ResourceParams are the params of read, subscribe, unsubscribe and the
// resource-updated notification.
type ResourceParams struct {
	URI string `json:"uri"`
}

// ServerInfo identifies the server, taken from the initialize result.
type ServerInfo struct {
	Name    string `json:"serverName"`
	Version string `json:"serverVersion"`
}

// DecodeResourceList extracts the resource list from a result.
// A missing or non-array "resources" member is a protocol error.
func DecodeResourceList(r *Result) ([]Resource, error) {
	if !r.HasData() {
		return nil, fmt.Errorf("%w: resources/list result has no data", ErrProtocol)
	}
	var shape struct {
		Resources *[]Resource `json:"resources"`
	}
	if err := json.Unmarshal(r.Data, &shape); err != nil {
		return nil, fmt.Errorf("%w: resources/list data: %v", ErrProtocol, err)
	}
	if shape.Resources == nil {
		return nil, fmt.Errorf("%w: resources/list data has no resources", ErrProtocol)
	}
	return *shape.Resources, nil
}

// DecodeServerInfo extracts server info from an initialize result.
// Info is read from data first, falling back to the top-level members.
// When data is present but not an info object, the fallback info is
// returned together with an error wrapping ErrProtocol.
func DecodeServerInfo(r *Result) (ServerInfo, error) {
	var info ServerInfo
	var err error
	if r.HasData() {
		if uerr := json.Unmarshal(r.Data, &info); uerr != nil {
			info = ServerInfo{}
			err = fmt.Errorf("%w: initialize data: %v", ErrProtocol, uerr)
		}
	}
	if info.Name == "" {
		info.Name = r.ServerName
	}
	if info.Version == "" {
		info.Version = r.ServerVersion
	}
	return info, err
}
