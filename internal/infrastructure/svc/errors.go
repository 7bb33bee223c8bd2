package svc

import "errors"

// ErrNoFeedsEnabled 错误：价格源不完整，无法计算价差
var ErrNoFeedsEnabled = errors.New("no exchange feeds enabled")

// ErrStorageInitFailed 错误：存储初始化失败
var ErrStorageInitFailed = errors.New("storage initialization failed")
