package federation

import "strings"

// Partition splits a list of "<id>@<host>" (or bare-id) addresses into
// locally-hosted ids and remote ids grouped by host. A bare id with no "@"
// is treated as local.
func Partition(addresses []string, ourHost string) (local []string, remote map[string][]string) {
	remote = make(map[string][]string)
	for _, addr := range addresses {
		id, host, ok := splitAddress(addr)
		if !ok || host == "" || host == ourHost {
			local = append(local, id)
			continue
		}
		remote[host] = append(remote[host], addr)
	}
	return local, remote
}

func splitAddress(addr string) (id, host string, ok bool) {
	idx := strings.LastIndexByte(addr, '@')
	if idx == -1 {
		return addr, "", true
	}
	return addr[:idx], addr[idx+1:], true
}
