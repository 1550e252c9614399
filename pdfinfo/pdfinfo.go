// Package pdfinfo inspects PDF payloads: structural validation of conversion
// results and page geometry for viewers that need to lay out page containers.
package pdfinfo

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageSize is one page's media box in PDF points (1/72 inch).
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Info describes a parsed PDF document.
type Info struct {
	PageCount int        `json:"page_count"`
	Pages     []PageSize `json:"pages"`
}

// pdfMagic is the required header of any PDF payload.
var pdfMagic = []byte("%PDF-")

// Validate checks that data is a structurally sound PDF. Used on conversion
// results before they are delivered, so a remote endpoint returning an HTML
// error page with a 200 status is caught here instead of at the user's
// reader.
func Validate(data []byte) error {
	if !bytes.HasPrefix(data, pdfMagic) {
		return fmt.Errorf("pdfinfo: payload is not a PDF (missing %%PDF header)")
	}
	conf := model.NewDefaultConfiguration()
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return fmt.Errorf("pdfinfo: validate: %w", err)
	}
	return nil
}

// Read parses data and returns page count and per-page dimensions.
func Read(data []byte) (*Info, error) {
	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, fmt.Errorf("pdfinfo: payload is not a PDF (missing %%PDF header)")
	}

	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("pdfinfo: read: %w", err)
	}

	dims, err := ctx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("pdfinfo: page dims: %w", err)
	}

	info := &Info{PageCount: ctx.PageCount}
	for _, d := range dims {
		info.Pages = append(info.Pages, PageSize{Width: d.Width, Height: d.Height})
	}
	return info, nil
}
