package db

import (
	"os"
)

func canstat(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func exists(path string) (found bool) {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func mkdir(dir string) (err error) {
	if _, err = os.Stat(dir); os.IsNotExist(err) {
		err = os.MkdirAll(dir, 0755)
		if err != nil {
			return
		}
	}
	return
}
