/**
 * Source Definition Parsing.
 *
 * A datasource definition string names the interface (or file, or
 * device) before the first colon, then zero or more comma-separated
 * key=value flags after it, e.g. "wlan0:name=mon0,channel=6" or
 * "/cap/sample.pcapng:name=replay0". Every capture binary needs the
 * same split, so it lives here instead of being copied three times.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package capframework

import "strings"

// ParseDefinition splits a definition string into its leading
// interface/path token and its trailing flag map. A definition with no
// colon is treated as bare interface with no flags.
func ParseDefinition(definition string) (iface string, flags map[string]string) {
	flags = make(map[string]string)
	idx := strings.IndexByte(definition, ':')
	if idx < 0 {
		return definition, flags
	}
	iface = definition[:idx]
	for _, part := range strings.Split(definition[idx+1:], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 {
			flags[kv[0]] = kv[1]
		} else {
			flags[kv[0]] = ""
		}
	}
	return iface, flags
}

// Flag looks up a flag by name, reporting whether it was present.
func Flag(flags map[string]string, name string) (string, bool) {
	v, ok := flags[name]
	return v, ok
}
