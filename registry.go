// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tiffdir

import (
	"fmt"
	"slices"
)

// UnknownPrefix is used as prefix for unknown tags.
const UnknownPrefix = "UnknownTag_"

// Special values for FieldInfo.ReadCount.
const (
	// VariableCount means any number of values.
	VariableCount = -1
	// SamplesCount means one value per sample (SamplesPerPixel values).
	SamplesCount = -2
)

// Tags with special handling.
const (
	TagSubfileType               uint16 = 254
	TagImageWidth                uint16 = 256
	TagImageLength               uint16 = 257
	TagBitsPerSample             uint16 = 258
	TagCompression               uint16 = 259
	TagPhotometricInterpretation uint16 = 262
	TagFillOrder                 uint16 = 266
	TagImageDescription          uint16 = 270
	TagStripOffsets              uint16 = 273
	TagOrientation               uint16 = 274
	TagSamplesPerPixel           uint16 = 277
	TagRowsPerStrip              uint16 = 278
	TagStripByteCounts           uint16 = 279
	TagMinSampleValue            uint16 = 280
	TagMaxSampleValue            uint16 = 281
	TagXResolution               uint16 = 282
	TagYResolution               uint16 = 283
	TagPlanarConfiguration       uint16 = 284
	TagPageNumber                uint16 = 297
	TagSoftware                  uint16 = 305
	TagDateTime                  uint16 = 306
	TagPredictor                 uint16 = 317
	TagColorMap                  uint16 = 320
	TagHalftoneHints             uint16 = 321
	TagTileWidth                 uint16 = 322
	TagTileLength                uint16 = 323
	TagTileOffsets               uint16 = 324
	TagTileByteCounts            uint16 = 325
	TagSubIFDs                   uint16 = 330
	TagDotRange                  uint16 = 336
	TagExtraSamples              uint16 = 338
	TagSampleFormat              uint16 = 339
	TagSMinSampleValue           uint16 = 340
	TagSMaxSampleValue           uint16 = 341
	TagYCbCrSubsampling          uint16 = 530
	TagReferenceBlackWhite       uint16 = 532
	TagImageDepth                uint16 = 32997
	TagTileDepth                 uint16 = 32998
	TagCopyright                 uint16 = 33432
	TagExifIFD                   uint16 = 34665
	TagGPSIFD                    uint16 = 34853

	TagSubjectDistance uint16 = 37382
)

// Compression schemes.
const (
	CompressionNone     = 1
	CompressionCCITTRLE = 2
	CompressionLZW      = 5
	CompressionOJPEG    = 6
	CompressionJPEG     = 7
	CompressionDeflate  = 8
	CompressionPackBits = 32773
)

// Planar configurations.
const (
	PlanarConfigContig   = 1
	PlanarConfigSeparate = 2
)

// Photometric interpretations.
const (
	PhotometricMinIsWhite = 0
	PhotometricMinIsBlack = 1
	PhotometricRGB        = 2
	PhotometricPalette    = 3
	PhotometricSeparated  = 5
	PhotometricYCbCr      = 6
)

// FieldInfo describes what the decoder expects of one tag.
type FieldInfo struct {
	Tag  uint16
	Name string

	// Types lists the accepted field types, widest first.
	// A single TypeAny accepts every numeric type.
	Types []FieldType

	// ReadCount is the expected number of values, VariableCount or SamplesCount.
	ReadCount int

	// PassCount is set when the value is committed as a CountedArray
	// instead of a bare scalar or slice.
	PassCount bool
}

// Type returns the widest type accepted by the field.
func (f FieldInfo) Type() FieldType {
	if len(f.Types) == 0 {
		return TypeAny
	}
	return f.Types[0]
}

// Accepts reports whether a value of type t can be stored in the field.
func (f FieldInfo) Accepts(t FieldType) bool {
	if f.Type() == TypeAny {
		return t != TypeASCII && t != TypeUndefined && t.Width() > 0
	}
	return slices.Contains(f.Types, t)
}

// Registry maps tag ids to their FieldInfo.
type Registry struct {
	name   string
	fields map[uint16]FieldInfo
}

// NewRegistry creates a new registry with the given fields.
func NewRegistry(name string, fields ...FieldInfo) *Registry {
	r := &Registry{
		name:   name,
		fields: make(map[uint16]FieldInfo, len(fields)),
	}
	for _, f := range fields {
		r.fields[f.Tag] = f
	}
	return r
}

// Name returns the registry name, e.g. "TIFF" or "EXIF".
func (r *Registry) Name() string {
	return r.name
}

// Lookup returns the FieldInfo for tag.
func (r *Registry) Lookup(tag uint16) (FieldInfo, bool) {
	f, ok := r.fields[tag]
	return f, ok
}

// TagName returns the display name of tag.
func (r *Registry) TagName(tag uint16) string {
	if f, ok := r.fields[tag]; ok {
		return f.Name
	}
	return fmt.Sprintf("%s0x%x", UnknownPrefix, tag)
}

// With returns a copy of r with the given fields added or replaced.
func (r *Registry) With(fields ...FieldInfo) *Registry {
	c := NewRegistry(r.name)
	for k, v := range r.fields {
		c.fields[k] = v
	}
	for _, f := range fields {
		c.fields[f.Tag] = f
	}
	return c
}

var (
	shortOnly    = []FieldType{TypeShort}
	longOnly     = []FieldType{TypeLong}
	longOrShort  = []FieldType{TypeLong, TypeShort}
	ascii        = []FieldType{TypeASCII}
	rational     = []FieldType{TypeRational}
	srational    = []FieldType{TypeSRational}
	undefined    = []FieldType{TypeUndefined}
	byteOnly     = []FieldType{TypeByte}
	shortOrByte  = []FieldType{TypeShort, TypeByte}
	anyType      = []FieldType{TypeAny}
	refBlackType = []FieldType{TypeRational, TypeLong, TypeShort}
)

func fi(tag uint16, name string, types []FieldType, readCount int, passCount bool) FieldInfo {
	return FieldInfo{Tag: tag, Name: name, Types: types, ReadCount: readCount, PassCount: passCount}
}

var baselineFields = []FieldInfo{
	fi(TagSubfileType, "SubfileType", longOnly, 1, false),
	fi(255, "OldSubfileType", shortOnly, 1, false),
	fi(TagImageWidth, "ImageWidth", longOrShort, 1, false),
	fi(TagImageLength, "ImageLength", longOrShort, 1, false),
	fi(TagBitsPerSample, "BitsPerSample", shortOnly, SamplesCount, false),
	fi(TagCompression, "Compression", shortOnly, 1, false),
	fi(TagPhotometricInterpretation, "PhotometricInterpretation", shortOnly, 1, false),
	fi(263, "Threshholding", shortOnly, 1, false),
	fi(264, "CellWidth", shortOnly, 1, false),
	fi(265, "CellLength", shortOnly, 1, false),
	fi(TagFillOrder, "FillOrder", shortOnly, 1, false),
	fi(269, "DocumentName", ascii, VariableCount, false),
	fi(TagImageDescription, "ImageDescription", ascii, VariableCount, false),
	fi(271, "Make", ascii, VariableCount, false),
	fi(272, "Model", ascii, VariableCount, false),
	fi(TagStripOffsets, "StripOffsets", longOrShort, VariableCount, false),
	fi(TagOrientation, "Orientation", shortOnly, 1, false),
	fi(TagSamplesPerPixel, "SamplesPerPixel", shortOnly, 1, false),
	fi(TagRowsPerStrip, "RowsPerStrip", longOrShort, 1, false),
	fi(TagStripByteCounts, "StripByteCounts", longOrShort, VariableCount, false),
	fi(TagMinSampleValue, "MinSampleValue", shortOnly, SamplesCount, false),
	fi(TagMaxSampleValue, "MaxSampleValue", shortOnly, SamplesCount, false),
	fi(TagXResolution, "XResolution", rational, 1, false),
	fi(TagYResolution, "YResolution", rational, 1, false),
	fi(TagPlanarConfiguration, "PlanarConfiguration", shortOnly, 1, false),
	fi(285, "PageName", ascii, VariableCount, false),
	fi(286, "XPosition", rational, 1, false),
	fi(287, "YPosition", rational, 1, false),
	fi(290, "GrayResponseUnit", shortOnly, 1, false),
	fi(292, "Group3Options", longOnly, 1, false),
	fi(293, "Group4Options", longOnly, 1, false),
	fi(296, "ResolutionUnit", shortOnly, 1, false),
	fi(TagPageNumber, "PageNumber", shortOnly, 2, false),
	fi(301, "TransferFunction", shortOnly, VariableCount, false),
	fi(TagSoftware, "Software", ascii, VariableCount, false),
	fi(TagDateTime, "DateTime", ascii, VariableCount, false),
	fi(315, "Artist", ascii, VariableCount, false),
	fi(316, "HostComputer", ascii, VariableCount, false),
	fi(TagPredictor, "Predictor", shortOnly, 1, false),
	fi(318, "WhitePoint", rational, 2, false),
	fi(319, "PrimaryChromaticities", rational, 6, false),
	fi(TagColorMap, "ColorMap", shortOnly, VariableCount, false),
	fi(TagHalftoneHints, "HalftoneHints", shortOnly, 2, false),
	fi(TagTileWidth, "TileWidth", longOrShort, 1, false),
	fi(TagTileLength, "TileLength", longOrShort, 1, false),
	fi(TagTileOffsets, "TileOffsets", longOrShort, VariableCount, false),
	fi(TagTileByteCounts, "TileByteCounts", longOrShort, VariableCount, false),
	fi(TagSubIFDs, "SubIFDs", longOnly, VariableCount, true),
	fi(332, "InkSet", shortOnly, 1, false),
	fi(333, "InkNames", ascii, VariableCount, false),
	fi(334, "NumberOfInks", shortOnly, 1, false),
	fi(TagDotRange, "DotRange", shortOrByte, 2, false),
	fi(337, "TargetPrinter", ascii, VariableCount, false),
	fi(TagExtraSamples, "ExtraSamples", shortOnly, VariableCount, true),
	fi(TagSampleFormat, "SampleFormat", shortOnly, SamplesCount, false),
	fi(TagSMinSampleValue, "SMinSampleValue", anyType, SamplesCount, false),
	fi(TagSMaxSampleValue, "SMaxSampleValue", anyType, SamplesCount, false),
	fi(347, "JPEGTables", undefined, VariableCount, true),
	fi(529, "YCbCrCoefficients", rational, 3, false),
	fi(TagYCbCrSubsampling, "YCbCrSubsampling", shortOnly, 2, false),
	fi(531, "YCbCrPositioning", shortOnly, 1, false),
	fi(TagReferenceBlackWhite, "ReferenceBlackWhite", refBlackType, 6, false),
	fi(700, "XMLPacket", byteOnly, VariableCount, true),
	fi(TagImageDepth, "ImageDepth", longOrShort, 1, false),
	fi(TagTileDepth, "TileDepth", longOrShort, 1, false),
	fi(TagCopyright, "Copyright", ascii, VariableCount, false),
	fi(33723, "RichTIFFIPTC", []FieldType{TypeLong, TypeUndefined, TypeByte}, VariableCount, true),
	fi(34377, "Photoshop", byteOnly, VariableCount, true),
	fi(TagExifIFD, "ExifIFD", longOnly, 1, false),
	fi(34675, "ICCProfile", undefined, VariableCount, true),
	fi(TagGPSIFD, "GPSInfoIFD", longOnly, 1, false),
}

var exifFields = []FieldInfo{
	fi(33434, "ExposureTime", rational, 1, false),
	fi(33437, "FNumber", rational, 1, false),
	fi(34850, "ExposureProgram", shortOnly, 1, false),
	fi(34852, "SpectralSensitivity", ascii, VariableCount, false),
	fi(34855, "ISOSpeedRatings", shortOnly, VariableCount, true),
	fi(36864, "ExifVersion", undefined, 4, false),
	fi(36867, "DateTimeOriginal", ascii, VariableCount, false),
	fi(36868, "DateTimeDigitized", ascii, VariableCount, false),
	fi(37121, "ComponentsConfiguration", undefined, 4, false),
	fi(37122, "CompressedBitsPerPixel", rational, 1, false),
	fi(37377, "ShutterSpeedValue", srational, 1, false),
	fi(37378, "ApertureValue", rational, 1, false),
	fi(37379, "BrightnessValue", srational, 1, false),
	fi(37380, "ExposureBiasValue", srational, 1, false),
	fi(37381, "MaxApertureValue", rational, 1, false),
	fi(TagSubjectDistance, "SubjectDistance", rational, 1, false),
	fi(37383, "MeteringMode", shortOnly, 1, false),
	fi(37384, "LightSource", shortOnly, 1, false),
	fi(37385, "Flash", shortOnly, 1, false),
	fi(37386, "FocalLength", rational, 1, false),
	fi(37396, "SubjectArea", shortOnly, VariableCount, true),
	fi(37500, "MakerNote", undefined, VariableCount, true),
	fi(37510, "UserComment", undefined, VariableCount, true),
	fi(37520, "SubSecTime", ascii, VariableCount, false),
	fi(37521, "SubSecTimeOriginal", ascii, VariableCount, false),
	fi(37522, "SubSecTimeDigitized", ascii, VariableCount, false),
	fi(40960, "FlashpixVersion", undefined, 4, false),
	fi(40961, "ColorSpace", shortOnly, 1, false),
	fi(40962, "PixelXDimension", longOrShort, 1, false),
	fi(40963, "PixelYDimension", longOrShort, 1, false),
	fi(40964, "RelatedSoundFile", ascii, 13, false),
	fi(41483, "FlashEnergy", rational, 1, false),
	fi(41486, "FocalPlaneXResolution", rational, 1, false),
	fi(41487, "FocalPlaneYResolution", rational, 1, false),
	fi(41488, "FocalPlaneResolutionUnit", shortOnly, 1, false),
	fi(41492, "SubjectLocation", shortOnly, 2, false),
	fi(41493, "ExposureIndex", rational, 1, false),
	fi(41495, "SensingMethod", shortOnly, 1, false),
	fi(41728, "FileSource", undefined, 1, false),
	fi(41729, "SceneType", undefined, 1, false),
	fi(41985, "CustomRendered", shortOnly, 1, false),
	fi(41986, "ExposureMode", shortOnly, 1, false),
	fi(41987, "WhiteBalance", shortOnly, 1, false),
	fi(41988, "DigitalZoomRatio", rational, 1, false),
	fi(41989, "FocalLengthIn35mmFilm", shortOnly, 1, false),
	fi(41990, "SceneCaptureType", shortOnly, 1, false),
	fi(41991, "GainControl", shortOnly, 1, false),
	fi(41992, "Contrast", shortOnly, 1, false),
	fi(41993, "Saturation", shortOnly, 1, false),
	fi(41994, "Sharpness", shortOnly, 1, false),
	fi(41996, "SubjectDistanceRange", shortOnly, 1, false),
	fi(42016, "ImageUniqueID", ascii, 33, false),
	fi(42035, "LensMake", ascii, VariableCount, false),
	fi(42036, "LensModel", ascii, VariableCount, false),
}

var (
	defaultRegistry = NewRegistry("TIFF", baselineFields...)
	exifRegistry    = NewRegistry("EXIF", exifFields...)
)

// DefaultRegistry returns the registry of baseline and common extension TIFF tags.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// ExifRegistry returns the registry used for EXIF private directories.
func ExifRegistry() *Registry {
	return exifRegistry
}
