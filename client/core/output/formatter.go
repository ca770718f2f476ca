// Package output provides output formatting functionality for client commands.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/pterm/pterm"

	"github.com/weisyn/chainmeta/pkg/types"
)

// Format 输出格式
type Format string

const (
	// FormatJSON JSON格式（默认）
	FormatJSON Format = "json"
	// FormatPretty 美化JSON格式
	FormatPretty Format = "pretty"
	// FormatTable 表格格式
	FormatTable Format = "table"
	// FormatText 纯文本格式
	FormatText Format = "text"
)

// ParseFormat 解析输出格式名
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSON, FormatPretty, FormatTable, FormatText:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (json, pretty, table, text)", s)
	}
}

// Formatter 输出格式化器
type Formatter struct {
	format    Format
	writer    io.Writer // 数据输出（JSON/表格等）
	logWriter io.Writer // 提示输出（Info/Success/Error等）
	silent    bool
}

// NewFormatter 创建格式化器
func NewFormatter(format Format, writer io.Writer) *Formatter {
	if writer == nil {
		writer = os.Stdout
	}

	return &Formatter{
		format:    format,
		writer:    writer,    // 数据输出到 stdout
		logWriter: os.Stderr, // 提示输出到 stderr（避免污染 JSON）
	}
}

// Format 当前输出格式
func (f *Formatter) Format() Format {
	return f.format
}

// SetLogWriter 设置提示输出目标（默认 stderr）
func (f *Formatter) SetLogWriter(writer io.Writer) {
	if writer == nil {
		writer = os.Stderr
	}
	f.logWriter = writer
}

// SetSilent 设置静默模式
func (f *Formatter) SetSilent(silent bool) {
	f.silent = silent
}

// Print 打印输出
func (f *Formatter) Print(data interface{}) error {
	if f.silent {
		return nil
	}

	switch f.format {
	case FormatJSON:
		return f.printJSON(data, false)
	case FormatPretty:
		return f.printJSON(data, true)
	case FormatTable:
		return f.printTable(data)
	case FormatText:
		return f.printText(data)
	default:
		return f.printJSON(data, false)
	}
}

// printJSON 打印JSON格式
func (f *Formatter) printJSON(data interface{}, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if _, err := fmt.Fprintln(f.writer, string(output)); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// printTable 打印表格格式
func (f *Formatter) printTable(data interface{}) error {
	var rows [][]string

	switch v := data.(type) {
	case *types.SystemInfo:
		rows = append([][]string{{"Field", "Value"}}, SystemInfoRows(v)...)
	case *types.RuntimeVersion:
		if err := f.renderTable(append([][]string{{"Field", "Value"}}, RuntimeVersionRows(v)...)); err != nil {
			return err
		}
		rows = append([][]string{{"API", "ID", "Version"}}, ApiRows(v)...)
	case map[string]interface{}:
		rows = [][]string{{"Key", "Value"}}
		for _, key := range sortedKeys(v) {
			rows = append(rows, []string{key, formatValue(v[key])})
		}
	default:
		// 降级到JSON
		return f.printJSON(data, true)
	}

	return f.renderTable(rows)
}

// renderTable 用 pterm 渲染带表头的表格
func (f *Formatter) renderTable(rows [][]string) error {
	out, err := pterm.DefaultTable.
		WithHasHeader().
		WithHeaderRowSeparator("-").
		WithData(rows).
		Srender()
	if err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	if _, err := fmt.Fprintln(f.writer, out); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// printText 打印纯文本格式
func (f *Formatter) printText(data interface{}) error {
	var lines []string

	switch v := data.(type) {
	case *types.SystemInfo:
		for _, row := range SystemInfoRows(v) {
			lines = append(lines, row[0]+": "+row[1])
		}
	case *types.RuntimeVersion:
		for _, row := range RuntimeVersionRows(v) {
			lines = append(lines, row[0]+": "+row[1])
		}
		for _, api := range v.Apis {
			lines = append(lines, fmt.Sprintf("api id: %s version: %d", api.ID, api.Version))
		}
	default:
		lines = []string{fmt.Sprintf("%v", data)}
	}

	for _, line := range lines {
		if _, err := fmt.Fprintln(f.writer, line); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	return nil
}

// PrintSuccess 打印成功消息（输出到 stderr，避免污染 JSON）
func (f *Formatter) PrintSuccess(message string) {
	if f.silent {
		return
	}
	_, _ = fmt.Fprintf(f.logWriter, "✅ %s\n", message)
}

// PrintError 打印错误消息（输出到 stderr，避免污染 JSON）
func (f *Formatter) PrintError(err error) {
	_, _ = fmt.Fprintf(f.logWriter, "❌ Error: %v\n", err)
}

// PrintWarning 打印警告消息（输出到 stderr，避免污染 JSON）
func (f *Formatter) PrintWarning(message string) {
	if f.silent {
		return
	}
	_, _ = fmt.Fprintf(f.logWriter, "⚠️  %s\n", message)
}

// PrintInfo 打印信息消息（输出到 stderr，避免污染 JSON）
func (f *Formatter) PrintInfo(message string) {
	if f.silent {
		return
	}
	_, _ = fmt.Fprintf(f.logWriter, "ℹ️  %s\n", message)
}

// ===== 行数据 =====

// SystemInfoRows 系统信息的键值行
func SystemInfoRows(info *types.SystemInfo) [][]string {
	rows := [][]string{
		{"chain id", info.ChainID},
		{"chain name", info.ChainName},
		{"token symbol", info.TokenSymbol},
		{"token decimals", strconv.FormatUint(uint64(info.TokenDecimals), 10)},
	}
	if info.SS58Format != nil {
		rows = append(rows, []string{"ss58 format", strconv.FormatUint(uint64(*info.SS58Format), 10)})
	}
	if info.NodeName != "" {
		rows = append(rows, []string{"node name", info.NodeName})
	}
	return rows
}

// RuntimeVersionRows 运行时版本的键值行（不含 API 列表）
func RuntimeVersionRows(rv *types.RuntimeVersion) [][]string {
	rows := [][]string{
		{"spec name", rv.SpecName},
		{"spec version", strconv.FormatUint(uint64(rv.SpecVersion), 10)},
	}
	if rv.ImplName != "" {
		rows = append(rows, []string{"impl name", rv.ImplName})
	}
	rows = append(rows,
		[]string{"transaction version", strconv.FormatUint(uint64(rv.TransactionVersion), 10)},
		[]string{"apis", strconv.Itoa(len(rv.Apis))},
	)
	return rows
}

// ApiRows API 列表行，保持节点给出的顺序
func ApiRows(rv *types.RuntimeVersion) [][]string {
	rows := make([][]string, 0, len(rv.Apis))
	for _, api := range rv.Apis {
		name := api.Name()
		if name == "" {
			name = "-"
		}
		rows = append(rows, []string{name, api.ID.String(), strconv.FormatUint(uint64(api.Version), 10)})
	}
	return rows
}

// ===== 辅助函数 =====

// formatValue 格式化值
func formatValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return "-"
	case fmt.Stringer:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ErrorOutput 错误输出结构
type ErrorOutput struct {
	Error struct {
		Code    string      `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	} `json:"error"`
}

// NewErrorOutput 创建错误输出
func NewErrorOutput(code string, message string, details interface{}) *ErrorOutput {
	output := &ErrorOutput{}
	output.Error.Code = code
	output.Error.Message = message
	output.Error.Details = details
	return output
}
