package media

import "strings"

// Coarse file categories.
const (
	TypeImage        = "image"
	TypeVideo        = "video"
	TypeAudio        = "audio"
	TypeArchive      = "archive"
	TypeDocument     = "document"
	TypeSpreadsheet  = "spreadsheet"
	TypePresentation = "presentation"
	TypeScript       = "script"
	TypePDF          = "pdf"
	TypeExecutable   = "executable"
	TypeFont         = "font"
	TypeConfig       = "config"
	TypeUnknown      = "unknown"
)

var extensionTypes = map[string]string{
	"jpg":  TypeImage,
	"jpeg": TypeImage,
	"png":  TypeImage,
	"gif":  TypeImage,
	"webp": TypeImage,
	"svg":  TypeImage,
	"bmp":  TypeImage,
	"ico":  TypeImage,
	"tiff": TypeImage,

	"mp4":  TypeVideo,
	"webm": TypeVideo,
	"mov":  TypeVideo,
	"avi":  TypeVideo,
	"mkv":  TypeVideo,

	"mp3":  TypeAudio,
	"wav":  TypeAudio,
	"ogg":  TypeAudio,
	"flac": TypeAudio,
	"aac":  TypeAudio,
	"m4a":  TypeAudio,

	"zip": TypeArchive,
	"rar": TypeArchive,
	"7z":  TypeArchive,
	"tar": TypeArchive,
	"gz":  TypeArchive,
	"bz2": TypeArchive,

	"doc":  TypeDocument,
	"docx": TypeDocument,
	"txt":  TypeDocument,
	"rtf":  TypeDocument,
	"odt":  TypeDocument,
	"md":   TypeDocument,

	"xls":  TypeSpreadsheet,
	"xlsx": TypeSpreadsheet,
	"csv":  TypeSpreadsheet,
	"ods":  TypeSpreadsheet,

	"ppt":  TypePresentation,
	"pptx": TypePresentation,
	"odp":  TypePresentation,

	"js":  TypeScript,
	"ts":  TypeScript,
	"py":  TypeScript,
	"go":  TypeScript,
	"php": TypeScript,
	"sh":  TypeScript,
	"rb":  TypeScript,
	"sql": TypeScript,

	"pdf": TypePDF,

	"exe": TypeExecutable,
	"msi": TypeExecutable,
	"apk": TypeExecutable,
	"dmg": TypeExecutable,
	"bin": TypeExecutable,

	"ttf":   TypeFont,
	"otf":   TypeFont,
	"woff":  TypeFont,
	"woff2": TypeFont,

	"json": TypeConfig,
	"xml":  TypeConfig,
	"yaml": TypeConfig,
	"yml":  TypeConfig,
	"ini":  TypeConfig,
	"toml": TypeConfig,
}

// ClassifyExtension maps a file extension to a coarse category. Unmapped
// extensions come back as "unknown"; the lookup never fails.
func ClassifyExtension(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	return TypeUnknown
}

// KnownTypes lists every category in a stable order, used to seed histograms.
var knownTypes = []string{
	TypeImage, TypeVideo, TypeAudio, TypeArchive, TypeDocument,
	TypeSpreadsheet, TypePresentation, TypeScript, TypePDF,
	TypeExecutable, TypeFont, TypeConfig, TypeUnknown,
}

// ZeroTypeCounts returns a fresh histogram with every known category at zero.
// A new map is allocated per call; callers own and may mutate it freely.
func ZeroTypeCounts() map[string]int64 {
	counts := make(map[string]int64, len(knownTypes))
	for _, t := range knownTypes {
		counts[t] = 0
	}
	return counts
}
