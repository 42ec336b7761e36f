package od

// CANopen object types, as encoded in the EDS "ObjectType" key (CiA 306).
const (
	ObjectTypeDOMAIN uint8 = 2
	ObjectTypeVAR    uint8 = 7
	ObjectTypeARRAY  uint8 = 8
	ObjectTypeRECORD uint8 = 9
)

// OBJ_NAME_MAP gives a human-readable label for each object type, used in
// debug logging when an entry is added to the dictionary.
var OBJ_NAME_MAP = map[uint8]string{
	ObjectTypeDOMAIN: "DOMAIN  ",
	ObjectTypeVAR:    "VARIABLE",
	ObjectTypeARRAY:  "ARRAY   ",
	ObjectTypeRECORD: "RECORD  ",
}

// CANopen basic data types, as encoded in the EDS "DataType" key (CiA 301).
const (
	BOOLEAN        uint8 = 0x01
	INTEGER8       uint8 = 0x02
	INTEGER16      uint8 = 0x03
	INTEGER32      uint8 = 0x04
	UNSIGNED8      uint8 = 0x05
	UNSIGNED16     uint8 = 0x06
	UNSIGNED32     uint8 = 0x07
	REAL32         uint8 = 0x08
	VISIBLE_STRING uint8 = 0x09
	OCTET_STRING   uint8 = 0x0A
	UNICODE_STRING uint8 = 0x0B
	DOMAIN         uint8 = 0x0F
	REAL64         uint8 = 0x11
	INTEGER64      uint8 = 0x15
	UNSIGNED64     uint8 = 0x1B
)
