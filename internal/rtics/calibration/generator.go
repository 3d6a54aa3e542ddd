package calibration

import (
	"fmt"
	"os/exec"
)

// GeneratorSource invokes an external helper process that writes a fresh
// calibration table to outputPath in the spec §6 wire format, then reads
// it back the same way FileSource does. The supplier only consumes the
// resulting buffer; it never computes coefficients itself (spec §4.6).
type GeneratorSource struct {
	command    string
	args       []string
	outputPath string
}

// NewGeneratorSource returns a Source that runs command with args each
// time Generate is called, then reads outputPath as the freshly written
// table.
func NewGeneratorSource(command string, args []string, outputPath string) *GeneratorSource {
	return &GeneratorSource{command: command, args: args, outputPath: outputPath}
}

func (g *GeneratorSource) Generate() (*Table, error) {
	cmd := exec.Command(g.command, g.args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("calibration: generator %q exited: %w (output: %s)", g.command, err, out)
	}
	return (&FileSource{path: g.outputPath}).Generate()
}
