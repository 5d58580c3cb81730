package encode

// NAL unit types carried in the low 5 bits of the first NAL byte.
const (
	nalTypeSPS = 7
	nalTypePPS = 8
)

// ParameterSets scans AVCC length-prefixed samples for the first SPS and
// PPS NAL units and returns their payloads (without the length prefix).
// Either result may be nil if the samples carry no parameter sets yet; the
// Encoder Worker keeps calling until both are in hand, since a backend only
// emits them alongside its first IDR frame.
func ParameterSets(samples []Sample) (sps, pps []byte) {
	for _, s := range samples {
		data := s.Data
		for len(data) >= 5 {
			length := int(data[0])<<24 | int(data[1])<<16 | int(data[2])<<8 | int(data[3])
			if length <= 0 || 4+length > len(data) {
				break
			}
			nal := data[4 : 4+length]
			switch nal[0] & 0x1F {
			case nalTypeSPS:
				if sps == nil {
					sps = append([]byte(nil), nal...)
				}
			case nalTypePPS:
				if pps == nil {
					pps = append([]byte(nil), nal...)
				}
			}
			data = data[4+length:]
		}
		if sps != nil && pps != nil {
			return sps, pps
		}
	}
	return sps, pps
}
