package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hwcp-protocol/hwcp-go/pkg/version"
	"github.com/hwcp-protocol/hwcp-go/pkg/wire"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records advertised for a server.
func EncodeTXT(info *ServerInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyModule:  info.Module,
		TXTKeyVersion: strconv.Itoa(int(version.Current().Major)),
		TXTKeyTLS:     "0",
	}
	if info.TLS {
		txt[TXTKeyTLS] = "1"
	}

	if len(info.Targets) > 0 {
		txt[TXTKeyTargets] = encodeTargets(info.Targets)
	}
	if info.Software != "" {
		txt[TXTKeySoftware] = info.Software
	} else {
		txt[TXTKeySoftware] = version.Software
	}
	return txt
}

// DecodeTXT parses the TXT records of a discovered server into svc.
func DecodeTXT(txt TXTRecordMap, svc *Service) error {
	var ok bool
	svc.Module, ok = txt[TXTKeyModule]
	if !ok || svc.Module == "" {
		return fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyModule)
	}

	v, ok := txt[TXTKeyVersion]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fmt.Errorf("%w: version %q", ErrInvalidTXTRecord, v)
	}
	svc.Version = n

	switch txt[TXTKeyTLS] {
	case "1":
		svc.TLS = true
	case "0", "":
		svc.TLS = false
	default:
		return fmt.Errorf("%w: tls %q", ErrInvalidTXTRecord, txt[TXTKeyTLS])
	}

	svc.Targets, err = parseTargets(txt[TXTKeyTargets])
	if err != nil {
		return err
	}
	svc.Software = txt[TXTKeySoftware]
	return nil
}

func encodeTargets(targets []wire.AccessTarget) string {
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.String()
	}
	return strings.Join(names, ",")
}

// parseTargets parses a comma-separated access target list.
func parseTargets(s string) ([]wire.AccessTarget, error) {
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	targets := make([]wire.AccessTarget, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		t, err := wire.ParseAccessTarget(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidTXTRecord, err)
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		// A key without "=" is a boolean flag with an empty value.
		k, v, _ := strings.Cut(s, "=")
		if k != "" {
			txt[k] = v
		}
	}
	return txt
}

// ValidateTXT checks the DNS size limit of a TXT record set. Each string
// costs one length byte plus its contents.
func ValidateTXT(strs []string) error {
	size := 0
	for _, s := range strs {
		size += 1 + len(s)
	}
	if size > MaxTXTRecordSize {
		return fmt.Errorf("%w: %d > %d bytes", ErrTXTTooLarge, size, MaxTXTRecordSize)
	}
	return nil
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTXTRecord)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
