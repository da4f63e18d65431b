package main

import "dicom-import-api/cmd"

func main() {
	cmd.Execute()
}
