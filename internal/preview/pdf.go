package preview

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var pdfcpuOnce sync.Once

func pdfConfig() *model.Configuration {
	pdfcpuOnce.Do(func() {
		// keep pdfcpu from creating a user config directory
		model.ConfigPath = "disable"
	})
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// countPDFPages reads the page tree without rendering anything.
func countPDFPages(data []byte) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()
	return api.PageCount(bytes.NewReader(data), pdfConfig())
}
