package lib

import (
	"fmt"
	"log"
	"os"
	"path"

	"github.com/yeqown/go-qrcode"
)

// SavePickupQR renders a booking's pickup code as a QR image in the temp
// asset directory and returns the file path.
func SavePickupQR(code string, filename string) (string, error) {
	qrc, err := qrcode.New(code)
	if err != nil {
		return "", err
	}
	wd, _ := os.Getwd()
	tempdir := os.Getenv("TEMP_ASSET_DIR")
	if tempdir == "" {
		tempdir = "tmp"
	}
	filepath := path.Join(wd, tempdir, fmt.Sprintf("%s.jpeg", filename))
	if err := qrc.Save(filepath); err != nil {
		log.Printf("Could not save qrcode to file [%s]: %s\n", filepath, err.Error())
		return "", err
	}
	return filepath, nil
}
