package diagnostics

import (
	"os/exec"

	"go2tv.app/screencast/internal/ssdp"
)

var (
	lookPath        = exec.LookPath
	probeInterfaces = ssdp.Interfaces
)

type BinaryStatus struct {
	Name  string `json:"name"`
	Found bool   `json:"found"`
	Path  string `json:"path,omitempty"`
}

type InterfaceStatus struct {
	Name string `json:"name"`
	IP   string `json:"ip"`
}

type DependencyReport struct {
	FFmpeg             BinaryStatus      `json:"ffmpeg"`
	Interfaces         []InterfaceStatus `json:"discovery_interfaces"`
	InterfaceError     string            `json:"discovery_interface_error,omitempty"`
	AllRequiredPresent bool              `json:"all_required_present"`
}

// DetectDependencies checks the encoder binary and the interfaces SSDP
// discovery would use.
func DetectDependencies(ffmpegBinary string) DependencyReport {
	ffmpeg := detectBinary(ffmpegBinary)

	report := DependencyReport{
		FFmpeg:     ffmpeg,
		Interfaces: []InterfaceStatus{},
	}
	ifaces, err := probeInterfaces()
	if err != nil {
		report.InterfaceError = err.Error()
	}
	for _, ifc := range ifaces {
		report.Interfaces = append(report.Interfaces, InterfaceStatus{Name: ifc.Name, IP: ifc.IP.String()})
	}
	report.AllRequiredPresent = ffmpeg.Found && len(report.Interfaces) > 0
	return report
}

func detectBinary(name string) BinaryStatus {
	path, err := lookPath(name)
	if err != nil {
		return BinaryStatus{Name: name, Found: false}
	}

	return BinaryStatus{
		Name:  name,
		Found: true,
		Path:  path,
	}
}
