package commands

import (
	"fmt"
	"path/filepath"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force  bool   `help:"Overwrite existing configuration file"`
	Output string `short:"o" name:"output" help:"Output directory for generated config file"`
}

func (i *InitCmd) Run(root *CLI) error {
	// If the user specified an output directory, place the config there as "landingd.yaml".
	if i.Output != "" {
		return RunInit(filepath.Join(i.Output, "landingd.yaml"), i.Force)
	}
	return RunInit(root.Config, i.Force)
}

func RunInit(configPath string, force bool) error {
	fmt.Println("Initializing landingd")
	fmt.Printf("Writing configuration to %s\n", configPath)
	if err := config.Init(configPath, force); err != nil {
		fmt.Println("Initialization failed")
		return err
	}
	fmt.Println("initialized successfully")
	return nil
}
