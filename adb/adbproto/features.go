package adbproto

// Feature is an optional feature supported by the server or device.
type Feature string

// Features which change how the client talks to the server.
//
// https://cs.android.com/android/platform/superproject/main/+/main:packages/modules/adb/transport.cpp;l=81-105;drc=2d3e62c2af54a3e8f8803ea10492e63b8dfe709f
const (
	FeatureSendRecv2                Feature = "sendrecv_v2"
	FeatureSendRecv2Brotli          Feature = "sendrecv_v2_brotli"
	FeatureSendRecv2LZ4             Feature = "sendrecv_v2_lz4"
	FeatureSendRecv2Zstd            Feature = "sendrecv_v2_zstd"
	FeatureDeviceTrackerProtoFormat Feature = "devicetracker_proto_format"
)
