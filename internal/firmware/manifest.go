// internal/firmware/manifest.go
package firmware

// ManifestEntry names one required firmware binary and the flash
// address it is written to.
type ManifestEntry struct {
	FileName string `json:"file_name"`
	Address  string `json:"address"`
}

// DefaultManifest lists the binaries every update bundle must carry,
// in flash order.
var DefaultManifest = []ManifestEntry{
	{FileName: "ftab.bin", Address: "0x12000000"},
	{FileName: "bootloader.bin", Address: "0x12010000"},
	{FileName: "main.bin", Address: "0x12020000"},
	{FileName: "lcpu.bin", Address: "0x12100000"},
	{FileName: "font.bin", Address: "0x12208000"},
	{FileName: "res.bin", Address: "0x12300000"},
}
