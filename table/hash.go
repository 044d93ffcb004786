package table

// DefaultHashBuckets is the default power-of-two hash table width used
// by block completion's duplicate-expunge pass.
const DefaultHashBuckets = 2048

// hsiehAdd folds a 16-bit word into a Paul Hsieh "SuperFastHash"-style
// accumulator.
func hsiehAdd(hash uint32, word uint16) uint32 {
	hash += uint32(word)
	tmp := (uint32(word) << 11) ^ hash
	hash = (hash << 16) ^ tmp
	hash += hash >> 11
	return hash
}

func hsiehFinal(hash uint32) uint32 {
	hash += hash >> 3
	hash ^= hash << 4
	hash += hash >> 5
	hash ^= hash << 25
	hash += hash >> 6
	return hash
}

// HashVal computes the 32-bit Hsieh-style hash of slot, masked to the
// given power-of-two bucket count (default DefaultHashBuckets).
func (t *Table) HashVal(slot int, buckets uint32) uint32 {
	h := uint32(len(t.Info)) // seed, mirrors the "add length" step of SuperFastHash
	if t.Variant.hasColor() {
		switch t.Variant {
		case Output8:
			for _, c := range t.Color8[slot*t.NComps : (slot+1)*t.NComps] {
				h = hsiehAdd(h, uint16(c))
			}
		case Output16:
			for _, c := range t.Color16[slot*t.NComps : (slot+1)*t.NComps] {
				h = hsiehAdd(h, c)
			}
		default:
			for _, c := range t.colorSlice(slot) {
				h = hsiehAdd(h, uint16(c))
			}
		}
	}
	if t.Variant.hasInfo() {
		info := t.Info[slot]
		h = hsiehAdd(h, info.Spot)
		h = hsiehAdd(h, uint16(info.ColorType)<<8|uint16(info.RenderingIntent))
		h = hsiehAdd(h, uint16(info.BlackType)<<8|uint16(info.ReproModel))
		h = hsiehAdd(h, info.Flags)
		h = hsiehAdd(h, uint16(info.Label))
		h = hsiehAdd(h, uint16(info.Label>>16))
	}
	if t.Variant.hasAlpha() {
		h = hsiehAdd(h, uint16(t.Alpha[slot]))
	}
	if t.Variant.hasGroupAlpha() {
		h = hsiehAdd(h, uint16(t.GroupAlpha[slot]))
	}
	if t.Variant.hasShape() {
		h = hsiehAdd(h, uint16(t.Shape[slot]))
	}
	h = hsiehFinal(h)
	if buckets == 0 {
		buckets = DefaultHashBuckets
	}
	return h & (buckets - 1)
}
