package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/encodeous/rplof/state"
	"github.com/manifoldco/promptui"
)

func promptDefaultStr(label string, def string, validateFunc promptui.ValidateFunc) string {
	prompt := promptui.Prompt{
		Label:     label,
		Default:   def,
		AllowEdit: true,
		Validate:  validateFunc,
	}
	val, err := prompt.Run()
	if err != nil {
		panic(err)
	}
	return val
}

func promptYN(prefix string, def bool) bool {
	choose := promptui.Select{
		Label:     prefix,
		Items:     []string{"Yes", "No"},
		Size:      2,
		CursorPos: 0,
	}
	if !def {
		choose.CursorPos = 1
	}
	run, _, err := choose.Run()
	if err != nil {
		return false
	}
	return run == 0
}

func promptSelect(label string, items []string, def string) string {
	choose := promptui.Select{
		Label: label,
		Items: items,
		Size:  len(items),
	}
	for i, item := range items {
		if item == def {
			choose.CursorPos = i
		}
	}
	_, val, err := choose.Run()
	if err != nil {
		panic(err)
	}
	return val
}

func promptLinkAddr(label string, def string) state.LinkAddr {
	val := promptDefaultStr(label, def, func(s string) error {
		addr, err := state.ParseLinkAddr(s)
		if err != nil {
			return err
		}
		if addr.IsNull() || addr.IsBroadcast() {
			return fmt.Errorf("%s is not a unicast link address", addr)
		}
		return nil
	})
	return state.MustParseLinkAddr(val)
}

func safeSaveFile(path string, name string) string {
Save:
	path, err := filepath.Abs(path)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Where do you want to save the %s?\n", name)
	path = promptDefaultStr("path", path, state.PathValidator)

	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Warning: %s file already exists: %s, do you want to overwrite it?\n", name, path)
		res := promptYN("Overwrite?", false)
		if !res {
			goto Save
		}
	}
	return path
}
