// Package version хранит данные сборки, проставленные через -ldflags.
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build: данные сборки для /healthz и логов старта.
type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

func Get() Build {
	return Build{Version: version, Commit: commit, Date: date}
}

func GetVersion() string { return version }
func GetCommit() string  { return commit }
func GetDate() string    { return date }

// ClientID: идентификатор клиента Kafka, включающий версию сервиса.
func ClientID(service string) string {
	return fmt.Sprintf("%s/%s", service, version)
}

func (b Build) String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", b.Version, b.Commit, b.Date)
}
