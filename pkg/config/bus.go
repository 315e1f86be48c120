package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

type Bus struct {
	Interface   string
	Channel     string
	Net         uint32
	Mode        uint32
	TxQueueSize int
	RxQueueSize int
	TxTimeout   int // ms
	RxTimeout   int // ms
	Bitrate     uint32
	Extended    bool
}

func DefaultBus() Bus {
	return Bus{
		Interface:   "virtual",
		Channel:     "localhost:18888",
		Net:         0x100,
		Mode:        0,
		TxQueueSize: 25,
		RxQueueSize: 256,
		TxTimeout:   1000,
		RxTimeout:   1000,
		Bitrate:     500_000,
		Extended:    false,
	}
}

// Accepts decimal, hex (0x) or octal (0) notation like EDS files
func parseUint32(raw string) (uint32, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 0, 32)
	return uint32(value), err
}

func parseInt(raw string) (int, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 0, 32)
	return int(value), err
}

func (bus *Bus) parse(section *ini.Section) error {
	if section.HasKey("interface") {
		bus.Interface = section.Key("interface").String()
	}
	if section.HasKey("channel") {
		bus.Channel = section.Key("channel").String()
	}
	uints := map[string]*uint32{
		"net":     &bus.Net,
		"mode":    &bus.Mode,
		"bitrate": &bus.Bitrate,
	}
	for key, value := range uints {
		if !section.HasKey(key) {
			continue
		}
		parsed, err := parseUint32(section.Key(key).Value())
		if err != nil {
			return fmt.Errorf("[CONFIG] invalid value for %v : %w", key, err)
		}
		*value = parsed
	}
	ints := map[string]*int{
		"tx_queue_size": &bus.TxQueueSize,
		"rx_queue_size": &bus.RxQueueSize,
		"tx_timeout":    &bus.TxTimeout,
		"rx_timeout":    &bus.RxTimeout,
	}
	for key, value := range ints {
		if !section.HasKey(key) {
			continue
		}
		parsed, err := parseInt(section.Key(key).Value())
		if err != nil {
			return fmt.Errorf("[CONFIG] invalid value for %v : %w", key, err)
		}
		*value = parsed
	}
	if section.HasKey("extended") {
		extended, err := section.Key("extended").Bool()
		if err != nil {
			return fmt.Errorf("[CONFIG] invalid value for extended : %w", err)
		}
		bus.Extended = extended
	}
	return nil
}
