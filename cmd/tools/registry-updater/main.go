// cmd/tools/registry-updater/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"hotspot-selection/internal/common/config"
	"hotspot-selection/pkg/registry"
)

const defaultRegistryPath = "configs/activity-registry.json"

type command struct {
	summary string
	run     func(args []string) error
}

var commands = map[string]command{
	"list":          {"List registered activities", listCmd},
	"add":           {"Add an activity", addCmd},
	"set":           {"Change one field of an activity", setCmd},
	"validate":      {"Validate the registry and compile every input schema", validateCmd},
	"check-input":   {"Validate a job variables file against a task type's input schema", checkInputCmd},
	"check-workers": {"Check that every worker in the service config has a registry entry", checkWorkersCmd},
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		usage()
		os.Exit(1)
	}
	if err := cmd.run(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func newFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	path := fs.String("path", defaultRegistryPath, "registry file")
	return fs, path
}

func listCmd(args []string) error {
	fs, path := newFlags("list")
	fs.Parse(args)

	reg, err := registry.LoadRegistry(*path)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TASK TYPE\tCATEGORY\tSTATUS\tTIMEOUT\tRETRIES")
	for _, a := range reg.Activities {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", a.TaskType, a.Category, a.Status, a.Timeout, a.Retries)
	}
	return w.Flush()
}

func addCmd(args []string) error {
	fs, path := newFlags("add")
	id := fs.String("id", "", "activity id, usually the task type")
	name := fs.String("displayName", "", "display name")
	desc := fs.String("description", "", "description")
	category := fs.String("category", "selection", "category (selection, data-access, communication)")
	taskType := fs.String("taskType", "", "Zeebe task type, defaults to id")
	timeout := fs.String("timeout", "30s", "job timeout")
	fs.Parse(args)

	if *id == "" || *name == "" {
		fs.Usage()
		return fmt.Errorf("id and displayName are required")
	}
	if *taskType == "" {
		*taskType = *id
	}

	reg, err := registry.LoadRegistry(*path)
	if os.IsNotExist(err) {
		reg, err = &registry.ActivityRegistry{Version: "1.0.0"}, nil
	}
	if err != nil {
		return err
	}
	if _, exists := reg.Find(*taskType); exists {
		return fmt.Errorf("task type %s already registered", *taskType)
	}

	reg.Activities = append(reg.Activities, registry.Activity{
		ID:          *id,
		DisplayName: *name,
		Description: *desc,
		Category:    *category,
		Version:     "1.0.0",
		TaskType:    *taskType,
		Status:      "planned",
		Timeout:     *timeout,
	})
	if err := reg.Validate(); err != nil {
		return err
	}
	fmt.Printf("added %s\n", *taskType)
	return save(reg, *path)
}

func setCmd(args []string) error {
	fs, path := newFlags("set")
	taskType := fs.String("taskType", "", "task type to change")
	field := fs.String("field", "", "status, version, displayName, description, category, timeout or retries")
	value := fs.String("value", "", "new value")
	fs.Parse(args)

	if *taskType == "" || *field == "" {
		fs.Usage()
		return fmt.Errorf("taskType and field are required")
	}

	reg, err := registry.LoadRegistry(*path)
	if err != nil {
		return err
	}
	a, ok := reg.Find(*taskType)
	if !ok {
		return fmt.Errorf("task type %s not registered", *taskType)
	}

	switch *field {
	case "status":
		a.Status = *value
	case "version":
		a.Version = *value
	case "displayName":
		a.DisplayName = *value
	case "description":
		a.Description = *value
	case "category":
		a.Category = *value
	case "timeout":
		a.Timeout = *value
	case "retries":
		n, err := strconv.Atoi(*value)
		if err != nil || n < 0 {
			return fmt.Errorf("retries must be a non-negative integer, got %q", *value)
		}
		a.Retries = n
	default:
		return fmt.Errorf("unknown field %s", *field)
	}

	if err := reg.Validate(); err != nil {
		return err
	}
	fmt.Printf("%s.%s = %s\n", *taskType, *field, *value)
	return save(reg, *path)
}

func validateCmd(args []string) error {
	fs, path := newFlags("validate")
	fs.Parse(args)

	reg, err := registry.LoadRegistry(*path)
	if err != nil {
		return err
	}
	if err := reg.Validate(); err != nil {
		return err
	}
	fmt.Printf("registry ok, %d activities\n", len(reg.Activities))
	return nil
}

func checkInputCmd(args []string) error {
	fs, path := newFlags("check-input")
	taskType := fs.String("taskType", "", "task type whose input schema is used")
	vars := fs.String("vars", "", "JSON file with job variables")
	fs.Parse(args)

	if *taskType == "" || *vars == "" {
		fs.Usage()
		return fmt.Errorf("taskType and vars are required")
	}

	reg, err := registry.LoadRegistry(*path)
	if err != nil {
		return err
	}
	schema, err := reg.InputValidator(*taskType)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(*vars)
	if err != nil {
		return err
	}
	if res := schema.ValidateJSON(string(data)); !res.Valid {
		return fmt.Errorf("%s", res.Error())
	}
	fmt.Println("variables match the input schema")
	return nil
}

func checkWorkersCmd(args []string) error {
	fs, path := newFlags("check-workers")
	cfgPath := fs.String("config", "configs/config.yaml", "service config file")
	fs.Parse(args)

	cfg, err := config.LoadFromFile(*cfgPath)
	if err != nil {
		return err
	}
	reg, err := registry.LoadRegistry(*path)
	if err != nil {
		return err
	}

	var enabled []string
	for taskType, w := range cfg.Workers {
		if w.Enabled {
			enabled = append(enabled, taskType)
		}
	}
	sort.Strings(enabled)

	if missing := reg.Missing(enabled); len(missing) > 0 {
		return fmt.Errorf("enabled workers without registry entry: %v", missing)
	}
	fmt.Printf("all %d enabled workers are registered\n", len(enabled))
	return nil
}

func save(reg *registry.ActivityRegistry, path string) error {
	reg.LastUpdated = time.Now().Format("2006-01-02")
	return reg.Save(path)
}

func usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Usage: registry-updater <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	for _, name := range names {
		fmt.Printf("  %-14s %s\n", name, commands[name].summary)
	}
	fmt.Println()
	fmt.Println("Use 'registry-updater <command> -h' for the flags of a command.")
}
