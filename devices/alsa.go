package devices

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// DefaultPCMPath is where the kernel lists ALSA PCM devices.
const DefaultPCMPath = "/proc/asound/pcm"

// ALSA lists PCM devices from the kernel's procfs table. It does not open them.
type ALSA struct {
	Path string
}

func (a *ALSA) Name() string { return "alsa" }

func (a *ALSA) Devices(context.Context) (AudioDevices, error) {
	path := a.Path
	if path == "" {
		path = DefaultPCMPath
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParsePCM(f)
}

// ParsePCM parses /proc/asound/pcm lines such as
//
//	00-00: ALC892 Analog : ALC892 Analog : playback 1 : capture 1
//
// into one device per PCM with the id hw:CARD,DEVICE. The first playback and
// capture devices are marked as defaults.
func ParsePCM(r io.Reader) (AudioDevices, error) {
	var list AudioDevices
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		fields := strings.Split(text, ":")
		if len(fields) < 3 {
			return nil, fmt.Errorf("pcm line %d: malformed %q", line, text)
		}
		card, dev, ok := strings.Cut(strings.TrimSpace(fields[0]), "-")
		if !ok {
			return nil, fmt.Errorf("pcm line %d: bad id %q", line, fields[0])
		}
		c, err := strconv.Atoi(card)
		if err != nil {
			return nil, fmt.Errorf("pcm line %d: card: %w", line, err)
		}
		d, err := strconv.Atoi(dev)
		if err != nil {
			return nil, fmt.Errorf("pcm line %d: device: %w", line, err)
		}

		ad := AudioDevice{
			Device: Device{
				Name:     strings.TrimSpace(fields[1]),
				UID:      fmt.Sprintf("hw:%d,%d", c, d),
				IsOnline: true,
			},
			DeviceType: "builtin",
		}
		for _, f := range fields[3:] {
			kind, _, _ := strings.Cut(strings.TrimSpace(f), " ")
			switch kind {
			case "playback":
				ad.OutputChannelCount = 2
			case "capture":
				ad.InputChannelCount = 2
			}
		}
		if strings.Contains(strings.ToLower(ad.Name), "usb") {
			ad.DeviceType = "usb"
		}
		list = append(list, ad)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if d := list.Outputs().preferred(func(AudioDevice) bool { return false }); d != nil {
		list.ByUID(d.UID).IsDefaultOutput = true
	}
	if d := list.Inputs().preferred(func(AudioDevice) bool { return false }); d != nil {
		list.ByUID(d.UID).IsDefaultInput = true
	}
	return list, nil
}
