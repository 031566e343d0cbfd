package ui

import (
	"errors"
	"fmt"
	"strings"

	"go2tv.app/screencast/internal/domain"
)

// RenderDevices formats the renderer listing of the devices command.
func RenderDevices(renderers []domain.Renderer) string {
	var b strings.Builder
	if len(renderers) == 0 {
		b.WriteString(TitleStyle.Render("No renderers found."))
		b.WriteString("\n\n")
		b.WriteString(HintStyle.Render("Check that the TV is on and on the same network, or raise --timeout."))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(TitleStyle.Render(fmt.Sprintf("Found %d renderer(s)", len(renderers))))
	b.WriteString("\n\n")
	for _, r := range renderers {
		b.WriteString(NameStyle.Render(r.FriendlyName))
		b.WriteString("\n")
		row(&b, "Location", r.Location)
		row(&b, "Interface", r.CallbackHost())
		if model := strings.TrimSpace(r.Manufacturer + " " + r.ModelName); model != "" {
			row(&b, "Model", model)
		}
		if r.UDN != "" {
			row(&b, "UDN", r.UDN)
		}
		b.WriteString("\n")
	}
	b.WriteString(HintStyle.Render(`Cast with: screencast screen --device "<name>"`))
	b.WriteString("\n")
	return b.String()
}

// RenderError formats err with the suggested fixes of a domain error.
func RenderError(err error) string {
	var b strings.Builder
	b.WriteString(ErrorTitleStyle.Render("Error: " + err.Error()))
	b.WriteString("\n")

	var de *domain.Error
	if errors.As(err, &de) && len(de.SuggestedFixes) > 0 {
		for _, fix := range de.SuggestedFixes {
			b.WriteString(FixStyle.Render("- " + fix))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func row(b *strings.Builder, key, value string) {
	b.WriteString(KeyStyle.Render(key + ":"))
	b.WriteString(ValueStyle.Render(value))
	b.WriteString("\n")
}
