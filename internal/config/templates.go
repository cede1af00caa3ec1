package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "sniffd", "server":
		return serverTemplate, nil
	case "job":
		return jobTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const serverTemplate = `name = "sniffd"
addr = ":9300"
cors_origins = ["http://localhost:3000"]
auth_token = ""
decode_timeout = "30s"
max_capture_bytes = 0
capture_root = "captures"
allow_remote = false
tls_cert_file = ""
tls_key_file = ""
tls_client_ca_file = ""

[ssh]
user = "analyzer"
port = "22"
key_path = "/etc/sniffd/id_ed25519"
known_hosts_path = "/etc/sniffd/known_hosts"
insecure_skip_host_key_checking = false
timeout = "10s"
`

const jobTemplate = `capture = "captures/trace.snif"
timeout = "30s"
output = "-"
annotations = false

[[decoder]]
id = "jtag"
start = 0
end = 0
[decoder.roles]
tck = 0
tms = 1
tdi = 2
tdo = 3

[[decoder]]
id = "uart"
[decoder.roles]
rxd = 4
[decoder.options]
baud = "115200"
parity = "none"
`
