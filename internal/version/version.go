// Package version хранит сведения о сборке витрины, заполняемые через -ldflags:
//
//	-X github.com/vladislavdragonenkov/teashop/internal/version.version=v1.2.0
package version

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Service - имя сервиса в логах, health и метриках.
const Service = "teashop-storefront"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build описывает конкретную сборку.
type Build struct {
	Version string
	Commit  string
	Date    string
}

// Current возвращает сведения о текущей сборке.
func Current() Build {
	return Build{Version: version, Commit: commit, Date: date}
}

// Dev сообщает, что бинарь собран без ldflags.
func (b Build) Dev() bool { return b.Version == "dev" }

func (b Build) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", Service, b.Version, b.Commit, b.Date)
}

// Fields возвращает поля для стартовой записи лога.
func (b Build) Fields() log.Fields {
	return log.Fields{
		"service": Service,
		"version": b.Version,
		"commit":  b.Commit,
		"built":   b.Date,
	}
}
