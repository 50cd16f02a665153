package discovery

import (
	"fmt"
	"sort"
	"strings"
)

// TXTRecordMap is a parsed TXT record.
type TXTRecordMap map[string]string

// EncodeServerTXT builds the TXT record for an advertised server.
// Empty values are omitted.
func EncodeServerTXT(info *ServiceInfo) TXTRecordMap {
	txt := make(TXTRecordMap)
	if info.Path != "" && info.Path != "/" {
		txt[TXTKeyPath] = info.Path
	}
	if info.Version != "" {
		txt[TXTKeyVersion] = info.Version
	}
	if info.Name != "" {
		txt[TXTKeyName] = info.Name
	}
	if info.Secure {
		txt[TXTKeySecure] = "1"
	}
	return txt
}

// DecodeServerTXT applies the TXT values to s. Unknown keys are ignored.
func DecodeServerTXT(txt TXTRecordMap, s *Server) {
	if p := txt[TXTKeyPath]; p != "/" {
		s.Path = p
	}
	s.Version = txt[TXTKeyVersion]
	s.Name = txt[TXTKeyName]
	switch strings.ToLower(txt[TXTKeySecure]) {
	case "1", "true", "yes":
		s.Secure = true
	}
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
// Keys are case-insensitive and stored lower case.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, _ := strings.Cut(s, "=")
		if k == "" {
			continue
		}
		txt[strings.ToLower(k)] = v
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidInstanceName)
	}
	if len(name) > MaxInstanceNameLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidInstanceName, MaxInstanceNameLen)
	}
	return nil
}
