package config

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

const (
	SectionBus     = "bus"
	SectionFilters = "filters"
)

// Configuration of a CAN interface, as read from an INI file
// e.g.
//
//	[bus]
//	interface = socketcan
//	channel   = can0
//	net       = 0x100
//	bitrate   = 500000
//	extended  = false
//	[filters]
//	ids = 0x100, 0x200
type File struct {
	Bus     Bus
	Filters []uint32
}

// Default configuration, used for every missing key
func Default() *File {
	return &File{Bus: DefaultBus()}
}

// Load configuration from an INI file
func Load(filePath string) (*File, error) {
	iniFile, err := ini.Load(filePath)
	if err != nil {
		return nil, err
	}
	log.Debugf("[CONFIG] loading %v", filePath)
	return parse(iniFile)
}

// Parse configuration from raw INI content
func Parse(data []byte) (*File, error) {
	iniFile, err := ini.Load(data)
	if err != nil {
		return nil, err
	}
	return parse(iniFile)
}

func parse(iniFile *ini.File) (*File, error) {
	file := Default()
	if err := file.Bus.parse(iniFile.Section(SectionBus)); err != nil {
		return nil, err
	}
	filters := iniFile.Section(SectionFilters)
	if filters.HasKey("ids") {
		for _, raw := range filters.Key("ids").Strings(",") {
			id, err := parseUint32(raw)
			if err != nil {
				return nil, fmt.Errorf("[CONFIG] invalid filter id %q : %w", raw, err)
			}
			file.Filters = append(file.Filters, id)
		}
	}
	return file, nil
}
