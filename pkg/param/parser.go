package param

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

// Get index & subindex matching
var matchIdxRegExp = regexp.MustCompile(`^[0-9A-Fa-f]{4}$`)
var matchSubidxRegExp = regexp.MustCompile(`^([0-9A-Fa-f]{4})sub([0-9A-Fa-f]+)$`)

// Parse loads vendor parameters from a device profile ini file into an
// existing store. Sections named after a 4 digit hex index declare an
// entry, XXXXsubY sections declare subindexed variables :
//
//	[0040]
//	ParameterName=SetPoint
//	AccessType=rw
//	DefaultValue=0x10
//	Length=2
//
// file can be either a path or []byte
func Parse(store *Store, file any) error {
	source, err := ini.Load(file)
	if err != nil {
		return err
	}
	for _, section := range source.Sections() {
		name := section.Name()

		if matchIdxRegExp.MatchString(name) {
			index, err := strconv.ParseUint(name, 16, 16)
			if err != nil {
				return fmt.Errorf("failed to parse index %v : %v", name, err)
			}
			parameterName := section.Key("ParameterName").String()
			if parameterName == "" {
				return fmt.Errorf("missing ParameterName for section %v", name)
			}
			subNumber := section.Key("SubNumber").MustInt(0)
			if subNumber > 0 {
				// Record entry, variables come from XXXXsub sections
				store.AddEntry(uint16(index), parameterName)
				continue
			}
			variable, err := variableFromSection(section, parameterName, 0)
			if err != nil {
				return err
			}
			entry := store.AddEntry(uint16(index), parameterName)
			entry.variables[0] = variable
			continue
		}

		if match := matchSubidxRegExp.FindStringSubmatch(name); match != nil {
			index, err := strconv.ParseUint(match[1], 16, 16)
			if err != nil {
				return fmt.Errorf("failed to parse index %v : %v", name, err)
			}
			subIndex, err := strconv.ParseUint(match[2], 16, 8)
			if err != nil {
				return fmt.Errorf("failed to parse subindex %v : %v", name, err)
			}
			entry := store.Index(uint16(index))
			if entry == nil {
				return fmt.Errorf("subindex section %v has no parent entry", name)
			}
			parameterName := section.Key("ParameterName").String()
			variable, err := variableFromSection(section, parameterName, uint8(subIndex))
			if err != nil {
				return err
			}
			entry.variables[uint8(subIndex)] = variable
		}
	}
	log.Infof("[PARAM] loaded device profile, %v entries", len(store.entries))
	return nil
}

func variableFromSection(section *ini.Section, name string, subIndex uint8) (*Variable, error) {
	attribute, err := parseAccessType(section.Key("AccessType").MustString("rw"))
	if err != nil {
		return nil, fmt.Errorf("section %v : %v", section.Name(), err)
	}
	length := section.Key("Length").MustInt(1)
	if length <= 0 || length > 232 {
		return nil, fmt.Errorf("section %v : invalid length %v", section.Name(), length)
	}
	defaultValue := make([]byte, length)
	raw := section.Key("DefaultValue").String()
	if raw != "" {
		parsed, err := strconv.ParseUint(strings.TrimPrefix(raw, "0x"), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("section %v : invalid default %v", section.Name(), raw)
		}
		for i := length - 1; i >= 0 && parsed != 0; i-- {
			defaultValue[i] = byte(parsed)
			parsed >>= 8
		}
	}
	return NewVariable(subIndex, name, attribute, defaultValue), nil
}

func parseAccessType(access string) (Attribute, error) {
	switch strings.ToLower(access) {
	case "ro":
		return AttributeRead, nil
	case "wo":
		return AttributeWrite, nil
	case "rw":
		return AttributeRw, nil
	default:
		return 0, fmt.Errorf("unknown access type %v", access)
	}
}
