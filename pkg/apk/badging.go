package apk

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// badgingInfo is the raw result of parsing `aapt2 dump badging` output.
type badgingInfo struct {
	PackageName string
	VersionCode int64
	VersionName string
	MinSDK      int64
	AppName     string
	IconPath    string
}

// parseBadging parses the line-oriented key/value output of
// `aapt2 dump badging`. Values may be quoted with ' or ". The tool output
// is trust-boundary input: icon paths are re-validated before use.
func parseBadging(output string) (*badgingInfo, error) {
	info := &badgingInfo{MinSDK: -1}
	var icons []iconEntry
	versionCodeSeen := false

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "package:"):
			if v, ok := quotedValue(line, "name="); ok {
				info.PackageName = v
			}
			if v, ok := quotedValue(line, "versionCode="); ok {
				if code, err := strconv.ParseInt(v, 10, 64); err == nil {
					info.VersionCode = code
					versionCodeSeen = true
				}
			}
			if v, ok := quotedValue(line, "versionName="); ok {
				info.VersionName = v
			}

		case strings.HasPrefix(line, "sdkVersion:"):
			if v, ok := quotedValueAfterColon(line); ok {
				if sdk, err := strconv.ParseInt(v, 10, 64); err == nil {
					info.MinSDK = sdk
				}
			}

		case strings.HasPrefix(line, "application-label:"):
			if v, ok := quotedValueAfterColon(line); ok {
				info.AppName = v
			}

		case strings.HasPrefix(line, "application-icon-"):
			if entry, ok := parseIconLine(line); ok {
				icons = append(icons, entry)
			}
		}
	}

	if info.PackageName == "" {
		return nil, fmt.Errorf("badging output missing package name")
	}
	if !versionCodeSeen {
		return nil, fmt.Errorf("badging output missing version code")
	}

	if info.VersionName == "" {
		info.VersionName = strconv.FormatInt(info.VersionCode, 10)
	}
	if info.MinSDK < 0 {
		info.MinSDK = 21
	}
	if info.AppName == "" {
		info.AppName = info.PackageName
	}

	// Highest-density icon wins.
	sort.Slice(icons, func(i, j int) bool { return icons[i].density > icons[j].density })
	if len(icons) > 0 {
		info.IconPath = icons[0].path
	}

	return info, nil
}

type iconEntry struct {
	density int
	path    string
}

// parseIconLine parses lines like:
// application-icon-640:'res/mipmap-xxxhdpi-v4/ic_launcher.png'
func parseIconLine(line string) (iconEntry, bool) {
	const prefix = "application-icon-"
	colon := strings.Index(line, ":")
	if colon < 0 {
		return iconEntry{}, false
	}

	density, err := strconv.Atoi(line[len(prefix):colon])
	if err != nil {
		return iconEntry{}, false
	}

	path, ok := quotedValueAfterColon(line)
	if !ok {
		return iconEntry{}, false
	}

	return iconEntry{density: density, path: path}, true
}

// quotedValue extracts a quoted value following a key, e.g. name='value'.
// Both single and double quotes are accepted.
func quotedValue(line, key string) (string, bool) {
	idx := strings.Index(line, key)
	if idx < 0 {
		return "", false
	}
	rest := line[idx+len(key):]
	if rest == "" {
		return "", false
	}

	quote := rest[0]
	if quote != '\'' && quote != '"' {
		return "", false
	}

	end := strings.IndexByte(rest[1:], quote)
	if end < 0 {
		return "", false
	}
	return rest[1 : 1+end], true
}

// quotedValueAfterColon extracts a quoted value after the first colon,
// e.g. sdkVersion:'26'.
func quotedValueAfterColon(line string) (string, bool) {
	colon := strings.Index(line, ":")
	if colon < 0 {
		return "", false
	}
	rest := line[colon+1:]
	if rest == "" {
		return "", false
	}

	quote := rest[0]
	if quote != '\'' && quote != '"' {
		return "", false
	}

	end := strings.IndexByte(rest[1:], quote)
	if end < 0 {
		return "", false
	}
	return rest[1 : 1+end], true
}
